// Package archive packs a directory tree into a zip archive for download.
//
// Every regular file below the directory becomes one Deflate entry named by
// its slash-separated path relative to that directory. Directories are not
// stored, and symbolic links are neither followed nor archived. Entries are
// written in lexical order per directory, so an unchanged tree always yields
// the same entry sequence.
//
//	a := archive.NewArchiver(archive.WithCompressionLevel(flate.BestSpeed))
//	out, err := a.Archive(ctx, "/srv/projects/site")
//	// out.Name == "site.zip"
package archive
