package mysql

import (
	"testing"

	"github.com/kasuganosora/afkagent/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDSN(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"afk:pw@tcp(db:3306)/afkagent", "afk:pw@tcp(db:3306)/afkagent?parseTime=true&charset=utf8mb4"},
		{"afk:pw@tcp(db:3306)/afkagent?timeout=3s", "afk:pw@tcp(db:3306)/afkagent?timeout=3s&parseTime=true&charset=utf8mb4"},
		{"afk:pw@tcp(db:3306)/afkagent?charset=latin1", "afk:pw@tcp(db:3306)/afkagent?charset=latin1&parseTime=true"},
		{"afk:pw@tcp(db:3306)/afkagent?parseTime=false&charset=utf8", "afk:pw@tcp(db:3306)/afkagent?parseTime=false&charset=utf8"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeDSN(tc.in), tc.in)
	}
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, 10, orDefault(0, 10))
	assert.Equal(t, 10, orDefault(-1, 10))
	assert.Equal(t, 4, orDefault(4, 10))
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Mode: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql_dsn")
}
