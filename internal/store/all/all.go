// Package all links every store backend into the binary. Import it for
// side effects only.
package all

import (
	_ "sheetdb/internal/store/gsheets"
	_ "sheetdb/internal/store/memory"
	_ "sheetdb/internal/store/mssql"
	_ "sheetdb/internal/store/postgres"
	_ "sheetdb/internal/store/sqlite"
	_ "sheetdb/internal/store/xlsx"
)
