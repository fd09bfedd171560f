package supervisor

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/kasuganosora/afkagent/config"
)

// Fault is a classified transport error.
type Fault struct {
	Transient bool
	Hint      string
}

type faultRule struct {
	errno     syscall.Errno
	substr    string
	transient bool
	hint      string
}

// faultRules is checked in order; errno matches win over substrings.
var faultRules = []faultRule{
	{syscall.ECONNRESET, "ECONNRESET", true, "Connection reset by server, likely network instability or server restart."},
	{syscall.EPIPE, "EPIPE", true, "Broken pipe, connection dropped mid-transfer."},
	{0, "ENOTFOUND", true, "DNS lookup failed, check hostname or network."},
	{0, "EAI_AGAIN", true, "DNS temporarily unavailable, poor network."},
	{syscall.EHOSTUNREACH, "EHOSTUNREACH", true, "Host unreachable, network down or server offline."},
	{syscall.ENETUNREACH, "ENETUNREACH", true, "Network unreachable, check your internet."},
	{syscall.ECONNREFUSED, "ECONNREFUSED", false, "Server is OFF or wrong IP/Port."},
	{syscall.ETIMEDOUT, "ETIMEDOUT", true, "Network timeout, server unreachable."},
	{0, "socket hang up", true, "Connection dropped unexpectedly."},
	{0, "Socket closed", true, "Connection dropped unexpectedly."},
	{0, "decoder", false, "Version mismatch or anti-bot."},
	{0, "packet", false, "Version mismatch or anti-bot."},
}

// Classify sorts a transport error into transient or persistent. Unknown
// errors are persistent.
func Classify(err error) Fault {
	if err == nil {
		return Fault{Hint: "Unknown error."}
	}
	for _, r := range faultRules {
		if r.errno != 0 && errors.Is(err, r.errno) {
			return Fault{Transient: r.transient, Hint: r.hint}
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTemporary {
			return Fault{Transient: true, Hint: "DNS temporarily unavailable, poor network."}
		}
		return Fault{Transient: true, Hint: "DNS lookup failed, check hostname or network."}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Fault{Transient: true, Hint: "Network timeout, server unreachable."}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return Fault{Transient: true, Hint: "Connection dropped unexpectedly."}
	}
	msg := err.Error()
	for _, r := range faultRules {
		if strings.Contains(msg, r.substr) {
			return Fault{Transient: r.transient, Hint: r.hint}
		}
	}
	return Fault{Hint: "Unknown error."}
}

// IsTransientReason reports whether a disconnect reason names a network fault.
func IsTransientReason(reason string) bool {
	for _, r := range faultRules {
		if r.transient && strings.Contains(reason, r.substr) {
			return true
		}
	}
	return false
}

// Backoff returns the delay before reconnect attempt number attempt.
// Transient faults use the smaller of the transient and regular base delay
// and a lower ceiling.
func Backoff(attempt int, transient bool, cfg config.ReconnectConfig) time.Duration {
	base, ceiling := cfg.BaseDelay, cfg.MaxDelay
	if transient {
		base = min(cfg.TransientDelay, cfg.BaseDelay)
		ceiling = min(cfg.TransientMaxDelay, cfg.MaxDelay)
	}
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(base)
	for i := 0; i < attempt && delay < float64(ceiling); i++ {
		delay *= mult
	}
	if delay > float64(ceiling) {
		return ceiling
	}
	return time.Duration(delay)
}

// View distances sent on connect.
const (
	ViewDistanceTiny  = 2
	ViewDistanceShort = 4
)

// ChooseViewDistance picks the fidelity for the next connect. Hosts matching
// an unreliable pattern always get the minimum.
func ChooseViewDistance(host string, ping time.Duration, probed, degraded bool, cfg config.ReconnectConfig, unreliable []string) int {
	for _, u := range unreliable {
		if u != "" && strings.Contains(host, u) {
			return ViewDistanceTiny
		}
	}
	if probed && ping < cfg.LowLatency && !degraded {
		return ViewDistanceShort
	}
	return ViewDistanceTiny
}

// KickText extracts readable text from a kick reason, which may be a JSON
// chat component.
func KickText(reason string) string {
	var comp struct {
		Text  string `json:"text"`
		Extra []struct {
			Text string `json:"text"`
		} `json:"extra"`
	}
	if err := json.Unmarshal([]byte(reason), &comp); err != nil {
		return reason
	}
	if comp.Text != "" {
		return comp.Text
	}
	var b strings.Builder
	for _, e := range comp.Extra {
		b.WriteString(e.Text)
	}
	if b.Len() > 0 {
		return b.String()
	}
	return reason
}
