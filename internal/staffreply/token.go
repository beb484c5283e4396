package staffreply

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/efyoos/bellhop/internal/store"
)

// ErrMalformedToken is returned for a button payload that is not
// action_<taskID>_v<version>.
var ErrMalformedToken = errors.New("staffreply: malformed action token")

// Token is a parsed button payload.
type Token struct {
	Action  store.Action
	TaskID  uint
	Version int
}

// String renders the token back into its wire form.
func (t Token) String() string {
	return fmt.Sprintf("%s_%d_v%d", t.Action, t.TaskID, t.Version)
}

// ParseToken parses action_<taskID>_v<version>. The action must be a known
// staff action, the task id positive and the version numeric.
func ParseToken(s string) (Token, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 3 {
		return Token{}, fmt.Errorf("%w: %q", ErrMalformedToken, s)
	}
	if !store.ValidAction(parts[0]) {
		return Token{}, fmt.Errorf("%w: unknown action in %q", ErrMalformedToken, s)
	}
	if !canonicalNumber(parts[1]) {
		return Token{}, fmt.Errorf("%w: bad task id in %q", ErrMalformedToken, s)
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || id == 0 {
		return Token{}, fmt.Errorf("%w: bad task id in %q", ErrMalformedToken, s)
	}
	if len(parts[2]) < 2 || parts[2][0] != 'v' || !canonicalNumber(parts[2][1:]) {
		return Token{}, fmt.Errorf("%w: bad version in %q", ErrMalformedToken, s)
	}
	version, err := strconv.Atoi(parts[2][1:])
	if err != nil {
		return Token{}, fmt.Errorf("%w: bad version in %q", ErrMalformedToken, s)
	}
	return Token{Action: store.Action(parts[0]), TaskID: uint(id), Version: version}, nil
}

// canonicalNumber reports whether s is plain decimal digits with no sign
// and no leading zero.
func canonicalNumber(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
