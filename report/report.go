// Package report decodes the end-of-episode report that pEpisodeManager
// embeds in the EPISODE_MNGR_REPORT variable.
package report

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrParse = errors.New("malformed episode report")

const (
	KeyEpisode  = "EPISODE"
	KeyDuration = "DURATION"
	KeySuccess  = "SUCCESS"

	// Delimiter separates KEY=VALUE tokens.
	Delimiter = ","
)

// Report is the structured form of one episode report.
type Report struct {
	Episode int
	// seconds
	Duration float64
	Success  bool
	// keys other than the three above, e.g. WILL_PAUSE
	Extra map[string]string
}

func (r Report) Elapsed() time.Duration {
	return time.Duration(r.Duration * float64(time.Second))
}

// Parse converts raw into a Report. It only converts types; whether the
// duration is long enough to count is up to the caller.
func Parse(raw string) (Report, error) {
	fields := make(map[string]string)
	for _, token := range strings.Split(raw, Delimiter) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		key, value, found := strings.Cut(token, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return Report{}, fmt.Errorf("%w: token %q is not KEY=VALUE", ErrParse, token)
		}
		fields[key] = strings.TrimSpace(value)
	}

	var r Report
	var err error

	episode, ok := fields[KeyEpisode]
	if !ok {
		return Report{}, missing(KeyEpisode, raw)
	}
	if r.Episode, err = strconv.Atoi(episode); err != nil {
		return Report{}, fmt.Errorf("%w: %s=%q is not an integer", ErrParse, KeyEpisode, episode)
	}

	duration, ok := fields[KeyDuration]
	if !ok {
		return Report{}, missing(KeyDuration, raw)
	}
	r.Duration, err = strconv.ParseFloat(duration, 64)
	if err != nil || math.IsNaN(r.Duration) || math.IsInf(r.Duration, 0) || r.Duration < 0 {
		return Report{}, fmt.Errorf("%w: %s=%q is not a non-negative number", ErrParse, KeyDuration, duration)
	}

	success, ok := fields[KeySuccess]
	if !ok {
		return Report{}, missing(KeySuccess, raw)
	}
	if r.Success, err = strconv.ParseBool(success); err != nil {
		return Report{}, fmt.Errorf("%w: %s=%q is not a boolean", ErrParse, KeySuccess, success)
	}

	for k, v := range fields {
		switch k {
		case KeyEpisode, KeyDuration, KeySuccess:
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[k] = v
	}
	return r, nil
}

func missing(key, raw string) error {
	return fmt.Errorf("%w: %s missing in %q", ErrParse, key, raw)
}
