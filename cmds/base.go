// Package cmds holds the command objects behind the CLI. A command is
// validated first and then executed with the writer for its output, so the
// same commands can be used from tests and from other programs.
package cmds

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/findy-network/findy-common-go/dto"
	"github.com/lainio/err2/try"
)

const storageKeyLength = 32

var ErrInvalid = errors.New("invalid command, check arguments")

type Result interface {
	JSON() ([]byte, error)
}

type Command interface {
	Validate() error
	Exec(w io.Writer) (r Result, err error)
}

// JSONResult is a Result of any JSON serializable value.
type JSONResult struct {
	V any
}

func (r JSONResult) JSON() ([]byte, error) {
	return dto.ToJSONBytes(r.V), nil
}

// ValidateKey checks the hex encoded storage key. Empty key is allowed and
// it means the storage isn't encrypted.
func ValidateKey(k string) error {
	if k == "" {
		return nil
	}
	b, err := hex.DecodeString(k)
	if err != nil {
		return fmt.Errorf("storage key: %w", err)
	}
	if len(b) != storageKeyLength {
		return fmt.Errorf("storage key must be %d bytes", storageKeyLength)
	}
	return nil
}

func ValidateSeed(seed string) error {
	if seed != "" && len(seed) != 32 {
		return errors.New("seed must be empty or length of 32")
	}
	return nil
}

// ValidateTime checks the time of the day in HH:MM or HH:MM:SS.
func ValidateTime(s string) error {
	if _, err := time.Parse("15:04", s); err == nil {
		return nil
	}
	if _, err := time.Parse("15:04:05", s); err != nil {
		return fmt.Errorf("time %q isn't HH:MM[:SS]", s)
	}
	return nil
}

// Fprintln is fmt.Fprintln but it allows writer to be nil. Note! it throws an
// error.
func Fprintln(w io.Writer, a ...any) {
	if w != nil {
		try.To1(fmt.Fprintln(w, a...))
	}
}

// Fprintf is fmt.Fprintf but it allows writer to be nil. Note! it throws an
// error.
func Fprintf(w io.Writer, format string, a ...any) {
	if w != nil {
		try.To1(fmt.Fprintf(w, format, a...))
	}
}
