// Package project materializes file sets into project directories.
//
// A FileSet groups files by category ("html", "css", "js"). Categories are
// labels only; they appear in logs and errors but do not affect where a file
// lands. Paths are relative to the project root and use forward slashes.
//
// Materialize writes every file of a FileSet below <workspace>/<project>:
//
//	m := project.NewMaterializer(workspace, project.WithLogger(logger))
//	res, err := m.Materialize(ctx, files, "site")
//
// Layout:
//
//	<workspace>/
//	  site/
//	    index.html
//	    css/style.css
//
// Every file is written to a temporary sibling and renamed into place. A new
// project is assembled in a hidden staging directory and renamed once all of
// its files exist, so a failed call leaves nothing behind. Writing into an
// existing project commits file by file; on failure MaterializeError.Written
// lists what already reached disk.
//
// Later entries win when two entries share a path.
package project
