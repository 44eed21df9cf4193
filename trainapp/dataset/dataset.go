package dataset

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var allowedExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".ppm":  true,
	".tif":  true,
	".tiff": true,
}

// Sample 이미지 파일과 class index
type Sample struct {
	Path  string
	Class int
}

// Directory class 별 하위 디렉토리로 구성된 데이터셋
type Directory struct {
	Path       string
	Classes    []string
	Train      []Sample
	Validation []Sample
}

// Load class 디렉토리를 이름순으로 읽고 class 마다 앞쪽 validationSplit 비율을 검증용으로 분리
func Load(dir string, validationSplit float64) (*Directory, error) {
	if validationSplit < 0 || validationSplit >= 1 {
		return nil, fmt.Errorf("Invalid validation split: %v", validationSplit)
	}

	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	d := &Directory{Path: dir}
	for _, entry := range entries {
		if entry.IsDir() {
			d.Classes = append(d.Classes, entry.Name())
		}
	}
	sort.Strings(d.Classes)

	if len(d.Classes) == 0 {
		return nil, fmt.Errorf("No class directories in %s", dir)
	}

	for class, name := range d.Classes {
		files, err := listImages(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		n := int(validationSplit * float64(len(files)))
		for idx, file := range files {
			sample := Sample{Path: file, Class: class}
			if idx < n {
				d.Validation = append(d.Validation, sample)
			} else {
				d.Train = append(d.Train, sample)
			}
		}
	}

	if len(d.Train) == 0 {
		return nil, errors.New("No training images")
	}

	return d, nil
}

// listImages 하위 디렉토리까지 포함한 이미지 파일 목록 (정렬)
func listImages(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if allowedExts[strings.ToLower(filepath.Ext(p))] {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	return files, nil
}
