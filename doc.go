// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

/*
Package rpfm provides read, edit, save, extract, and table-decoding
operations for Pack archives across their format revisions (PFH0 through
PFH5). Entry bodies stay on disk behind a shared handle until first read,
so opening and listing large archives is cheap.

Transform rules (summary):
  - stored bodies may be compressed, obfuscated, or both;
  - decoding always runs de-obfuscate first, then decompress;
  - compression applies on save only to entries the SaveOptions.Compress
    rules include, and only when the result is smaller than the source;
  - obfuscation is keyed by the archive's format revision.

# Reading

Open one or more Pack files as a single merged view and read entries:

	a, err := rpfm.Open([]string{"base.pack", "patch.pack"}, true)
	if err != nil {
	    return err
	}
	defer a.Close()
	for _, path := range a.Paths() {
	    e, _ := a.Lookup(path)
	    data, _ := e.ReadDecoded()
	    // use data
	}

For metadata-only scans without keeping the file open:

	entries, err := rpfm.ListEntries("base.pack")
	if err != nil {
	    return err
	}
	_ = entries

# Editing and saving

Saves are staged to a temp file and renamed into place, with optional
rotating backups:

	e, _ := rpfm.NewEntry("db/units_tables/units", data)
	_ = a.Add(e, true)
	_, err = a.SaveWithOptions("out.pack", rpfm.SaveOptions{BackupKeep: 2})

# Tables

Schema-driven table decoding, localisation records, TSV round-trips, and
cross-archive foreign-key checks run through a Session:

	s := rpfm.NewSession(schema)
	_ = s.OpenArchive([]string{"mod.pack"}, true)
	_ = s.LoadDependencies("data", true)
	problems, err := s.CheckTables(ctx)
*/
package rpfm
