package domain

import "strings"

// Default fixed widths for padded text fields, in bytes.
const (
	DefaultNameMaxLen        = 40
	DefaultDescriptionMaxLen = 60
)

// padByte fills the unused tail of a fixed-width field.
const padByte = "\x00"

// PadText right-pads s with NUL bytes to exactly max bytes. Inputs longer than
// max are rejected with tooLong rather than truncated.
func PadText(s string, max int, tooLong error) (string, error) {
	if len(s) > max {
		return "", tooLong
	}
	return s + strings.Repeat(padByte, max-len(s)), nil
}

// UnpadText strips the NUL padding added by PadText.
func UnpadText(s string) string {
	return strings.TrimRight(s, padByte)
}

// TextLimits holds the fixed widths applied to names and descriptions.
type TextLimits struct {
	NameMaxLen        int
	DescriptionMaxLen int
}

// DefaultTextLimits returns the widths used when configuration leaves them
// unset.
func DefaultTextLimits() TextLimits {
	return TextLimits{
		NameMaxLen:        DefaultNameMaxLen,
		DescriptionMaxLen: DefaultDescriptionMaxLen,
	}
}

// PadName pads a name to the configured width.
func (l TextLimits) PadName(s string) (string, error) {
	return PadText(s, l.NameMaxLen, ErrNameIsTooLong)
}

// PadDescription pads a description to the configured width.
func (l TextLimits) PadDescription(s string) (string, error) {
	return PadText(s, l.DescriptionMaxLen, ErrDescriptionIsTooLong)
}
