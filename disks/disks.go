// Package disks provides a registry of predefined disk image profiles. A
// profile only decides how big an image is; the file system layout within it
// is fixed. Profiles larger than the minimum geometry leave the surplus
// blocks untouched.
package disks

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/dargueta/chainfs"
	"github.com/gocarina/gocsv"
)

type Profile struct {
	Name string `csv:"name"`
	Slug string `csv:"slug"`

	// TotalBlocks gives the number of addressable blocks in the image,
	// covering the metadata region, the data region, and any slack.
	TotalBlocks uint   `csv:"total_blocks"`
	Notes       string `csv:"notes"`
}

// TotalSizeBytes gives the size of the image file described by this profile.
func (p *Profile) TotalSizeBytes() int64 {
	return int64(p.TotalBlocks) * chainfs.BlockSize
}

//go:embed disk-profiles.csv
var diskProfilesRawCSV string
var diskProfiles = map[string]Profile{}

// GetPredefinedProfile returns the profile registered under `slug`.
func GetPredefinedProfile(slug string) (Profile, error) {
	profile, ok := diskProfiles[slug]
	if ok {
		return profile, nil
	}

	err := fmt.Errorf("no predefined disk profile exists with slug %q", slug)
	return Profile{}, err
}

// ListProfiles returns the slugs of all registered profiles.
func ListProfiles() []string {
	slugs := make([]string, 0, len(diskProfiles))
	for slug := range diskProfiles {
		slugs = append(slugs, slug)
	}
	return slugs
}

func init() {
	reader := strings.NewReader(diskProfilesRawCSV)
	err := gocsv.UnmarshalToCallback(
		reader,
		func(row Profile) error {
			_, exists := diskProfiles[row.Slug]
			if exists {
				return fmt.Errorf(
					"duplicate definition for disk profile %q found on row %d",
					row.Slug,
					len(diskProfiles)+1,
				)
			}
			diskProfiles[row.Slug] = row
			return nil
		},
	)
	if err != nil && err != io.EOF {
		panic(err)
	}
}
