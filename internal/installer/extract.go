package installer

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/sequential"

	"github.com/pantryhq/pantry/internal/fspath"
)

// extractTar unpacks a tar stream into dest, creating dest if needed. File
// writes go through moby/sys/sequential, which opens files with
// FILE_FLAG_SEQUENTIAL_SCAN on Windows: extraction is a pure
// write-once-read-never-again access pattern, and the hint avoids the
// random-access-oriented cache behavior Windows otherwise assumes, which
// matters when a single install unpacks thousands of small files.
func extractTar(r io.Reader, dest fspath.AbsolutePath) error {
	if err := dest.MkdirAll(); err != nil {
		return err
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := stripLeadingPackageDir(hdr.Name)
		if name == "" || name == "." {
			continue
		}
		target := dest.Join(filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := target.MkdirAll(); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := target.Dir().MkdirAll(); err != nil {
				return err
			}
			if err := writeRegularFile(target, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := target.Dir().MkdirAll(); err != nil {
				return err
			}
			_ = target.Remove()
			if err := target.Symlink(hdr.Linkname); err != nil {
				return err
			}
		default:
			// devices, fifos, etc. have no place in a package archive;
			// skip rather than fail the whole install over them.
		}
	}
}

// stripLeadingPackageDir drops a tarball's conventional single top-level
// directory (npm tarballs nest everything under "package/"), the way `tar
// --strip-components=1` would, so extracted packages land directly at
// their staging root.
func stripLeadingPackageDir(name string) string {
	name = strings.TrimPrefix(name, "./")
	parts := strings.SplitN(name, "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func writeRegularFile(target fspath.AbsolutePath, r io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	f, err := sequential.OpenFile(target.String(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
