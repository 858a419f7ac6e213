//go:build !tinygo

// Command mkfs builds an Ember file system at an afs URL: the bundled
// program images plus every regular file from a host directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"ember/emberos/apps"
	emberfs "ember/emberos/fs"
)

func main() {
	var srcDir string
	var outURL string
	var noApps bool
	flag.StringVar(&srcDir, "src", "", "Host directory whose files are imported (optional).")
	flag.StringVar(&outURL, "out", "", "File system location (path or afs URL).")
	flag.BoolVar(&noApps, "no-apps", false, "Do not install the bundled programs.")
	flag.Parse()

	if outURL == "" {
		fmt.Fprintln(os.Stderr, "error: -out is required")
		os.Exit(2)
	}

	names, err := run(context.Background(), afs.New(), srcDir, url.Normalize(outURL, file.Scheme), !noApps)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

// run fills the file system at outURL and returns its directory listing.
func run(ctx context.Context, store afs.Service, srcDir, outURL string, withApps bool) ([]string, error) {
	fsys, err := emberfs.Mount(ctx, store, outURL)
	if err != nil {
		return nil, err
	}
	if withApps {
		if err := apps.Install(ctx, fsys); err != nil {
			return nil, err
		}
	}
	if srcDir == "" {
		return fsys.List(), nil
	}

	files, err := hostFiles(srcDir)
	if err != nil {
		return nil, err
	}
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(srcDir, name))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", name, err)
		}
		if err := fsys.WriteFile(ctx, name, data); err != nil {
			return nil, fmt.Errorf("write %q: %w", name, err)
		}
	}
	return fsys.List(), nil
}

// hostFiles lists the regular files directly inside dir. The Ember file
// system has a single directory, so subdirectories are skipped.
func hostFiles(dir string) ([]string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat src %q: %w", dir, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("src %q is not a directory", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read src %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.Type()&fs.ModeType != 0 {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}
