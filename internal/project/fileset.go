package project

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseFileSet decodes the JSON object form of a FileSet:
//
//	{"html": {"index.html": "<html></html>"}, "css": {"style.css": "body{}"}}
//
// Categories and files keep document order. Repeated keys are kept as
// separate entries, so the last occurrence of a path wins when written.
func ParseFileSet(data []byte) (FileSet, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidFileSet)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected an object of categories, got %s", ErrInvalidFileSet, root.Type)
	}

	fs := FileSet{}
	var err error
	root.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			err = fmt.Errorf("%w: category %q must be an object of path to content", ErrInvalidFileSet, key.String())
			return false
		}
		cat := Category{Name: key.String(), Files: []File{}}
		value.ForEach(func(p, content gjson.Result) bool {
			if content.Type != gjson.String {
				err = fmt.Errorf("%w: content of %q in category %q must be a string, got %s",
					ErrInvalidFileSet, p.String(), key.String(), content.Type)
				return false
			}
			cat.Files = append(cat.Files, File{Path: p.String(), Content: content.String()})
			return true
		})
		if err != nil {
			return false
		}
		fs = append(fs, cat)
		return true
	})
	if err != nil {
		return nil, err
	}
	return fs, nil
}
