// Command backy packs and unpacks encrypted backup archives. Subcommand
// dispatch and signal handling follow the teacher's original main.go
// (os/signal.NotifyContext around the long-running operation); any error is
// printed to stderr and exits with status 1. Unlike the teacher it has no persistent server state, so
// there is no database or data-directory bootstrap, just the operation the
// user asked for.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/afero"

	"backy/internal/archive"
	"backy/internal/keyfile"
	"backy/internal/model"
	"backy/internal/pack"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "generate-key":
		err = runGenerateKey(os.Args[2:])
	case "pack":
		err = runPack(ctx, os.Args[2:])
	case "unpack":
		err = runUnpack(ctx, os.Args[2:])
	case "list-sources":
		err = runListSources(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "get":
		err = runGet(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "backy:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: backy <generate-key|pack|unpack|list-sources|list|get> [flags]")
}

func runGenerateKey(args []string) error {
	fs := flag.NewFlagSet("generate-key", flag.ExitOnError)
	out := fs.String("out", "", "write the key to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *out == "" {
		key, err := keyfile.Generate()
		if err != nil {
			return err
		}
		fmt.Println(keyfile.Encode(key))
		return nil
	}

	_, err := keyfile.WriteFile(*out)
	return err
}

func runPack(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	keyPath := fs.String("key-file", "", "path to a base64 key file (required)")
	out := fs.String("out", "", "output container path, or output directory when -max-group-size is set")
	maxGroupSize := fs.Uint64("max-group-size", 0, "split into multiple containers of at most this many bytes")
	concurrency := fs.Int("concurrency", runtime.NumCPU(), "max containers packed concurrently")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keyPath == "" || *out == "" || fs.NArg() == 0 {
		return fmt.Errorf("usage: backy pack -key-file FILE -out PATH SOURCE...")
	}

	key, err := keyfile.ReadFile(*keyPath)
	if err != nil {
		return err
	}

	sources := make([]model.Source, 0, fs.NArg())
	osfs := afero.NewOsFs()
	for _, arg := range fs.Args() {
		path, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		if path, err = filepath.EvalSymlinks(path); err != nil {
			return err
		}
		info, err := osfs.Stat(path)
		if err != nil {
			return err
		}
		sources = append(sources, model.Source{
			Id:     filepath.Base(path),
			IsFile: !info.IsDir(),
			Path:   path,
		})
	}

	return pack.Archive(ctx, osfs, sources, *out, key, *maxGroupSize, *concurrency)
}

func runUnpack(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("unpack", flag.ExitOnError)
	keyPath := fs.String("key-file", "", "path to a base64 key file (required)")
	archivePath := fs.String("archive", "", "container file or directory of containers (required)")
	out := fs.String("out", "", "destination directory (required)")
	concurrency := fs.Int("concurrency", runtime.NumCPU(), "max containers unpacked concurrently")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keyPath == "" || *archivePath == "" || *out == "" {
		return fmt.Errorf("usage: backy unpack -key-file FILE -archive PATH -out DIR")
	}

	key, err := keyfile.ReadFile(*keyPath)
	if err != nil {
		return err
	}

	osfs := afero.NewOsFs()
	a, err := archive.Open(osfs, *archivePath, key)
	if err != nil {
		return err
	}
	if err := osfs.MkdirAll(*out, 0o755); err != nil {
		return err
	}
	return a.Unpack(ctx, *out, *concurrency)
}

func runListSources(args []string) error {
	a, err := openArchiveFromFlags(args)
	if err != nil {
		return err
	}
	for _, id := range a.Sources() {
		fmt.Println(id)
	}
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	keyPath := fs.String("key-file", "", "path to a base64 key file (required)")
	archivePath := fs.String("archive", "", "container file or directory of containers (required)")
	source := fs.String("source", "", "restrict to this source id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keyPath == "" || *archivePath == "" {
		return fmt.Errorf("usage: backy list -key-file FILE -archive PATH [-source ID]")
	}

	key, err := keyfile.ReadFile(*keyPath)
	if err != nil {
		return err
	}
	a, err := archive.Open(afero.NewOsFs(), *archivePath, key)
	if err != nil {
		return err
	}
	for _, p := range a.FilePaths(*source) {
		fmt.Println(p)
	}
	return nil
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	keyPath := fs.String("key-file", "", "path to a base64 key file (required)")
	archivePath := fs.String("archive", "", "container file or directory of containers (required)")
	source := fs.String("source", "", "source id (optional; matches any source if omitted)")
	path := fs.String("path", "", "entry path within the source (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keyPath == "" || *archivePath == "" || *path == "" {
		return fmt.Errorf("usage: backy get -key-file FILE -archive PATH [-source ID] -path ENTRY")
	}

	key, err := keyfile.ReadFile(*keyPath)
	if err != nil {
		return err
	}
	a, err := archive.Open(afero.NewOsFs(), *archivePath, key)
	if err != nil {
		return err
	}
	return a.GetFile(*source, model.EntryPath(*path), os.Stdout)
}

func openArchiveFromFlags(args []string) (*archive.Archive, error) {
	fs := flag.NewFlagSet("list-sources", flag.ExitOnError)
	keyPath := fs.String("key-file", "", "path to a base64 key file (required)")
	archivePath := fs.String("archive", "", "container file or directory of containers (required)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *keyPath == "" || *archivePath == "" {
		return nil, fmt.Errorf("usage: backy list-sources -key-file FILE -archive PATH")
	}
	key, err := keyfile.ReadFile(*keyPath)
	if err != nil {
		return nil, err
	}
	return archive.Open(afero.NewOsFs(), *archivePath, key)
}

func init() {
	log.SetFlags(0)
}
