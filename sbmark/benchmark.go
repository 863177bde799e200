package sbmark

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// ErrConfiguration marks a setup mistake. The run must not start, or must stop, when it shows up.
var ErrConfiguration = errors.New("configuration error")

// ErrThresholdAbort is returned by the executor when the critical error threshold stopped the run.
var ErrThresholdAbort = errors.New("aborted by threshold")

type Mode string

const (
	ModeGet Mode = "GET"
	ModePut Mode = "PUT"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeGet:
		return ModeGet, nil
	case ModePut:
		return ModePut, nil
	}
	return "", errors.Wrapf(ErrConfiguration, "unknown mode %q, expected GET or PUT", s)
}

// ObjectRef addresses a single object.
type ObjectRef struct {
	Bucket string
	Key    string
}

func (r ObjectRef) String() string {
	return r.Bucket + "/" + r.Key
}

// Ticker reports progress of the setup phases. *progressbar.ProgressBar implements it.
type Ticker interface {
	Add(int) error
}

type NilTicker struct{}

func (t *NilTicker) Add(int) error {
	return nil
}

// formats bytes to KB or MB
func ByteFormat(bytes float64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// ParseByteSize accepts plain byte counts as well as sizes like "4 KiB" or "1MB".
func ParseByteSize(s string) (uint64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(ErrConfiguration, "invalid size %q: %v", s, err)
	}
	return n, nil
}

func configErrorf(format string, args ...interface{}) error {
	return errors.Wrap(ErrConfiguration, fmt.Sprintf(format, args...))
}
