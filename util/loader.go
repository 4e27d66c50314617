package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-nnaccel/models/model/preprocess"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the frame number parsed from a "frame-N" file name, or -1.
	Frame int
}

// Format returns the still image encoding implied by the file extension.
func (f ImageFile) Format() preprocess.ImageFormat {
	return FormatFromPath(f.Path)
}

// Image wraps the file for the preprocessor.
func (f ImageFile) Image() *preprocess.Image {
	return &preprocess.Image{Format: f.Format(), Data: f.Data}
}

// FormatFromPath maps ".png" to PNG and everything else to JPEG.
func FormatFromPath(path string) preprocess.ImageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return preprocess.ImageFormatPNG
	}
	return preprocess.ImageFormatJPEG
}

// LoadDirectoryImageFiles reads all JPEG and PNG files from a directory.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: Numbered frames in frame order, followed by any other images in name order.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read directory %s", dir)
	}

	var images []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := filepath.Ext(file.Name())
		switch strings.ToLower(ext) {
		case ".jpg", ".jpeg", ".png":
			imgPath := filepath.Join(dir, file.Name())
			data, readErr := os.ReadFile(imgPath)
			if readErr != nil {
				return nil, errors.Wrapf(readErr, "read %s", imgPath)
			}
			images = append(images, ImageFile{
				Path:  imgPath,
				Data:  data,
				Frame: frameNumber(file.Name(), ext),
			})
		}
	}

	sort.SliceStable(images, func(i, j int) bool {
		a, b := images[i], images[j]
		if (a.Frame < 0) != (b.Frame < 0) {
			return a.Frame >= 0
		}
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		return a.Path < b.Path
	})

	return images, nil
}

func frameNumber(name, ext string) int {
	name = strings.TrimSuffix(name, ext)
	if !strings.HasPrefix(name, "frame-") {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, "frame-"))
	if err != nil || n < 0 {
		return -1
	}
	return n
}
