package levels

import (
	"embed"
	"fmt"
	"io/fs"
)

// LevelsFS holds sample levels as the game writes them. Tools use them as
// fixtures and starting points.
//
//go:embed *.xml
var LevelsFS embed.FS

func LoadLevelFromFS(name string) (*Level, error) {
	data, err := fs.ReadFile(LevelsFS, name)
	if err != nil {
		return nil, fmt.Errorf("read level: %w", err)
	}
	lvl, err := Decode(string(data))
	if err != nil {
		return nil, fmt.Errorf("decode level %s: %w", name, err)
	}
	return lvl, nil
}
