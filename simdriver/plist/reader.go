package plist

import (
	"context"

	"github.com/spance/simdriver-go/constants"
	"github.com/spance/simdriver-go/utils"
)

// Reader prints single Info.plist entries with PlistBuddy.
type Reader struct {
	Runner utils.Runner
	Tool   string
}

func NewReader() *Reader {
	return &Reader{Runner: utils.ExecRunner{}, Tool: constants.PlistBuddyPath}
}

// ReadField returns the raw stdout of `PlistBuddy -c "Print <field>" <plistPath>`.
func (r *Reader) ReadField(ctx context.Context, plistPath, field string) (string, error) {
	out, err := r.Runner.Run(ctx, utils.Command{
		Tag:  "ReadField",
		Name: r.Tool,
		Args: []string{"-c", "Print " + field, plistPath},
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
