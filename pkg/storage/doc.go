// Package storage writes downloaded media into an output directory.
//
// Files are named <itemID>.<format> and written atomically: the data goes to
// a .tmp file first and is renamed into place once complete. The Manager keeps
// an index of saved item ids, rebuilt from the directory listing on start, so
// repeated runs skip media that is already present.
//
// All file access goes through an afero.Fs, which lets tests run against an
// in-memory filesystem:
//
//	m, err := storage.NewManager(afero.NewOsFs(), "downloads")
//	if err != nil {
//	    return err
//	}
//	if !m.IsSaved(item.ID) {
//	    _, err = m.Save(body, item.ID, item.Format)
//	}
package storage
