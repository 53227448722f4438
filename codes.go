package litedb

// SQLite primary result codes used by this package. These mirror the
// codes documented at https://www.sqlite.org/rescode.html and the table
// the teacher package kept in sqlite3_shared.go's errMsg for use before
// sqlite3_errstr existed.
const (
	codeOK         = 0
	codeError      = 1
	codeInternal   = 2
	codePerm       = 3
	codeAbort      = 4
	codeBusy       = 5
	codeLocked     = 6
	codeNoMem      = 7
	codeReadOnly   = 8
	codeInterrupt  = 9
	codeIOErr      = 10
	codeCorrupt    = 11
	codeNotFound   = 12
	codeFull       = 13
	codeCantOpen   = 14
	codeProtocol   = 15
	codeEmpty      = 16
	codeSchema     = 17
	codeTooBig     = 18
	codeConstraint = 19
	codeMismatch   = 20
	codeMisuse     = 21
	codeNoLFS      = 22
	codeAuth       = 23
	codeFormat     = 24
	codeRange      = 25
	codeNotADB     = 26
	codeNotice     = 27
	codeWarning    = 28
	codeRow        = 100
	codeDone       = 101
)

var codeNames = map[int]string{
	codeOK:         "SQLITE_OK",
	codeError:      "SQLITE_ERROR",
	codeInternal:   "SQLITE_INTERNAL",
	codePerm:       "SQLITE_PERM",
	codeAbort:      "SQLITE_ABORT",
	codeBusy:       "SQLITE_BUSY",
	codeLocked:     "SQLITE_LOCKED",
	codeNoMem:      "SQLITE_NOMEM",
	codeReadOnly:   "SQLITE_READONLY",
	codeInterrupt:  "SQLITE_INTERRUPT",
	codeIOErr:      "SQLITE_IOERR",
	codeCorrupt:    "SQLITE_CORRUPT",
	codeNotFound:   "SQLITE_NOTFOUND",
	codeFull:       "SQLITE_FULL",
	codeCantOpen:   "SQLITE_CANTOPEN",
	codeProtocol:   "SQLITE_PROTOCOL",
	codeEmpty:      "SQLITE_EMPTY",
	codeSchema:     "SQLITE_SCHEMA",
	codeTooBig:     "SQLITE_TOOBIG",
	codeConstraint: "SQLITE_CONSTRAINT",
	codeMismatch:   "SQLITE_MISMATCH",
	codeMisuse:     "SQLITE_MISUSE",
	codeNoLFS:      "SQLITE_NOLFS",
	codeAuth:       "SQLITE_AUTH",
	codeFormat:     "SQLITE_FORMAT",
	codeRange:      "SQLITE_RANGE",
	codeNotADB:     "SQLITE_NOTADB",
	codeNotice:     "SQLITE_NOTICE",
	codeWarning:    "SQLITE_WARNING",
	codeRow:        "SQLITE_ROW",
	codeDone:       "SQLITE_DONE",
}

// codeName returns the symbolic SQLite name for a primary result code,
// or a generic placeholder if unknown.
func codeName(code int) string {
	if name, ok := codeNames[code&0xff]; ok {
		return name
	}
	return "SQLITE_UNKNOWN"
}

// SQLite authorizer action codes, used by the statement compiler (C2) to
// classify READ vs schema-mutating (DDL) actions. Subset relevant to
// schema invalidation and observed-table tracking.
const (
	actionCreateIndex   = 1
	actionCreateTable   = 2
	actionCreateTempIdx = 3
	actionCreateTempTbl = 4
	actionCreateTempTrg = 5
	actionCreateTempVw  = 6
	actionCreateTrigger = 7
	actionCreateView    = 8
	actionDelete        = 9
	actionDropIndex     = 10
	actionDropTable     = 11
	actionDropTempIdx   = 12
	actionDropTempTbl   = 13
	actionDropTempTrg   = 14
	actionDropTempVw    = 15
	actionDropTrigger   = 16
	actionDropView      = 17
	actionInsert        = 18
	actionPragma        = 19
	actionRead          = 20
	actionSelect        = 21
	actionTransaction   = 22
	actionUpdate        = 23
	actionAttach        = 24
	actionDetach        = 25
	actionAlterTable    = 26
	actionReindex       = 27
	actionAnalyze       = 28
	actionCreateVtable  = 29
	actionDropVtable    = 30
	actionFunction      = 31
	actionSavepoint     = 32
	actionRecursive     = 33
)

// isDDLAction reports whether a sqlite3_set_authorizer action code
// indicates a schema-mutating statement per spec §4.3 ("a
// schema-mutating update invalidates cached primary keys and cached
// statements").
func isDDLAction(action int) bool {
	switch action {
	case actionCreateIndex, actionCreateTable, actionCreateTempIdx,
		actionCreateTempTbl, actionCreateTempTrg, actionCreateTempVw,
		actionCreateTrigger, actionCreateView, actionDropIndex,
		actionDropTable, actionDropTempIdx, actionDropTempTbl,
		actionDropTempTrg, actionDropTempVw, actionDropTrigger,
		actionDropView, actionAlterTable, actionCreateVtable,
		actionDropVtable:
		return true
	}
	return false
}

// isReadAction reports whether an authorizer action code represents a
// column/table read, used to populate Statement.ObservedTables.
func isReadAction(action int) bool {
	return action == actionRead
}
