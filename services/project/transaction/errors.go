// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transaction

import "errors"

var (
	// ErrTransactionActive is returned by Begin when a transaction is
	// already open, including one resumed from a leftover backup file.
	ErrTransactionActive = errors.New("transaction already active")

	// ErrTransactionNotActive is returned by Commit and Rollback when no
	// transaction is open.
	ErrTransactionNotActive = errors.New("no active transaction")

	// ErrBackupFailed is returned by Begin when the project file could not
	// be copied to the backup path. No transaction is opened.
	ErrBackupFailed = errors.New("backup failed")

	// ErrRestoreFailed is returned by Rollback when the backup could not be
	// moved back over the project file. The transaction stays active so the
	// rollback can be retried.
	ErrRestoreFailed = errors.New("restore failed")
)
