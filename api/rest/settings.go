package rest

import (
	"errors"

	"github.com/kasuganosora/afkagent/model"
	"gorm.io/gorm"
)

// LoadSettings returns the stored dashboard settings. found is false on first
// run, when the returned value is an empty row ready to be saved.
func LoadSettings(db *gorm.DB) (s model.Settings, found bool, err error) {
	err = db.First(&s, model.SettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Settings{ID: model.SettingsID}, false, nil
	}
	if err != nil {
		return model.Settings{}, false, err
	}
	return s, true, nil
}

// SaveSettings writes the single settings row.
func SaveSettings(db *gorm.DB, s *model.Settings) error {
	s.ID = model.SettingsID
	return db.Save(s).Error
}
