package didcomm

import (
	"fmt"
	"strings"
)

// Check collects field validation failures of a message.
type Check struct {
	fails []string
}

// Required fails if the value of the named field is empty.
func (c *Check) Required(name, value string) *Check {
	if value == "" {
		c.fails = append(c.fails, name+" is required")
	}
	return c
}

// OneOf fails if the value isn't empty and it isn't one of the allowed.
func (c *Check) OneOf(name, value string, allowed ...string) *Check {
	if value == "" {
		return c
	}
	for _, a := range allowed {
		if a == value {
			return c
		}
	}
	c.fails = append(c.fails, fmt.Sprintf("%s must be one of %s", name,
		strings.Join(allowed, ", ")))
	return c
}

// That fails with the msg if ok is false.
func (c *Check) That(ok bool, msg string) *Check {
	if !ok {
		c.fails = append(c.fails, msg)
	}
	return c
}

// Err returns nil if all the checks passed.
func (c *Check) Err() error {
	if len(c.fails) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(c.fails, "; "))
}
