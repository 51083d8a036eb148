package token

import "strings"

// Category tags a keyword with its broad grammatical role. The tokenizer
// assigns the first matching category, checked in priority order:
// statement, clause, function, datatype, operator, constraint, modifier,
// misc, global variable, system procedure.
type Category int

const (
	CatNone Category = iota
	CatStatement
	CatClause
	CatFunction
	CatDataType
	CatOperator
	CatConstraint
	CatModifier
	CatMisc
	CatGlobalVar
	CatSysProc
)

var categoryNames = map[Category]string{
	CatNone:       "none",
	CatStatement:  "statement",
	CatClause:     "clause",
	CatFunction:   "function",
	CatDataType:   "datatype",
	CatOperator:   "operator",
	CatConstraint: "constraint",
	CatModifier:   "modifier",
	CatMisc:       "misc",
	CatGlobalVar:  "global_variable",
	CatSysProc:    "system_procedure",
}

// String returns the category name.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "none"
}

var statementKeywords = keywordSet(
	"SELECT", "INSERT", "UPDATE", "DELETE", "MERGE", "CREATE", "ALTER",
	"DROP", "TRUNCATE", "EXEC", "EXECUTE", "DECLARE", "SET", "USE",
	"WITH", "BEGIN", "END", "COMMIT", "ROLLBACK", "IF", "ELSE", "WHILE",
	"RETURN", "PRINT", "GRANT", "REVOKE", "DENY", "BACKUP", "RESTORE",
	"BULK", "WAITFOR", "GOTO", "THROW", "RAISERROR", "TRY", "CATCH",
)

var clauseKeywords = keywordSet(
	"FROM", "WHERE", "GROUP", "ORDER", "BY", "HAVING", "INTO", "VALUES",
	"JOIN", "ON", "UNION", "INTERSECT", "EXCEPT", "AS", "USING", "OUTPUT",
	"OPTION", "APPLY", "PIVOT", "UNPIVOT", "OVER", "PARTITION", "WHEN",
	"THEN", "MATCHED", "TARGET", "SOURCE", "LIMIT", "OFFSET", "FETCH",
	"NEXT", "FIRST", "ROWS", "ONLY", "CASE",
)

var functionKeywords = keywordSet(
	"COUNT", "SUM", "AVG", "MIN", "MAX", "ABS", "CEILING", "FLOOR",
	"ROUND", "GETDATE", "GETUTCDATE", "SYSDATETIME", "DATEADD",
	"DATEDIFF", "DATEPART", "DATENAME", "YEAR", "MONTH", "DAY", "LEN",
	"DATALENGTH", "SUBSTRING", "CHARINDEX", "PATINDEX", "REPLACE",
	"LTRIM", "RTRIM", "TRIM", "UPPER", "LOWER", "LEFT", "RIGHT",
	"REVERSE", "REPLICATE", "STUFF", "CONCAT", "COALESCE", "NULLIF",
	"ISNULL", "IIF", "CHOOSE", "CAST", "CONVERT", "TRY_CAST",
	"TRY_CONVERT", "PARSE", "FORMAT", "ROW_NUMBER", "RANK", "DENSE_RANK",
	"NTILE", "LAG", "LEAD", "FIRST_VALUE", "LAST_VALUE", "STRING_AGG",
	"STRING_SPLIT", "NEWID", "NEWSEQUENTIALID", "SCOPE_IDENTITY",
	"IDENT_CURRENT", "OBJECT_ID", "OBJECT_NAME", "SCHEMA_NAME", "DB_NAME",
	"USER_NAME", "SUSER_SNAME", "OPENJSON", "JSON_VALUE", "JSON_QUERY",
	"JSON_MODIFY", "OPENQUERY", "OPENROWSET", "FREETEXT", "CONTAINS",
)

var datatypeKeywords = keywordSet(
	"INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "BIT", "DECIMAL",
	"NUMERIC", "MONEY", "SMALLMONEY", "FLOAT", "REAL", "DATE", "TIME",
	"DATETIME", "DATETIME2", "SMALLDATETIME", "DATETIMEOFFSET", "CHAR",
	"VARCHAR", "TEXT", "NCHAR", "NVARCHAR", "NTEXT", "BINARY",
	"VARBINARY", "IMAGE", "UNIQUEIDENTIFIER", "XML", "SQL_VARIANT",
	"TIMESTAMP", "ROWVERSION", "HIERARCHYID", "GEOGRAPHY", "GEOMETRY",
	"CURSOR", "TABLE",
)

var operatorKeywords = keywordSet(
	"AND", "OR", "NOT", "IN", "LIKE", "BETWEEN", "EXISTS", "IS", "NULL",
	"ANY", "SOME", "ALL", "ESCAPE", "COLLATE",
)

var constraintKeywords = keywordSet(
	"PRIMARY", "FOREIGN", "KEY", "REFERENCES", "UNIQUE", "CHECK",
	"CONSTRAINT", "DEFAULT", "INDEX", "CLUSTERED", "NONCLUSTERED",
	"IDENTITY", "CASCADE", "NOCHECK",
)

var modifierKeywords = keywordSet(
	"DISTINCT", "TOP", "PERCENT", "TIES", "ASC", "DESC", "INNER", "OUTER",
	"CROSS", "FULL", "NATURAL", "RECURSIVE", "NOLOCK", "READONLY",
	"HOLDLOCK", "UPDLOCK", "ROWLOCK", "TABLOCK", "READPAST", "FORCESEEK",
)

var miscKeywords = keywordSet(
	"GO", "TO", "OF", "FOR", "ADD", "COLUMN", "VIEW", "PROCEDURE", "PROC",
	"FUNCTION", "TRIGGER", "DATABASE", "SCHEMA", "SERVER", "TRANSACTION",
	"TRAN", "NOCOUNT", "OBJECT", "OFF", "READ", "WRITE", "INSERTED",
	"DELETED", "ACTION", "INSTEAD", "AFTER", "RETURNS", "EXTERNAL",
	"SECURITY", "INVOKER", "CALLER", "OWNER", "ENCRYPTION", "RECOMPILE",
	"SCHEMABINDING",
)

var globalVarKeywords = keywordSet(
	"@@ROWCOUNT", "@@IDENTITY", "@@ERROR", "@@TRANCOUNT", "@@VERSION",
	"@@SERVERNAME", "@@SPID", "@@FETCH_STATUS", "@@NESTLEVEL",
	"@@PROCID", "@@LANGUAGE", "@@DATEFIRST",
)

var sysProcKeywords = keywordSet(
	"SP_HELP", "SP_HELPTEXT", "SP_WHO", "SP_WHO2", "SP_RENAME",
	"SP_EXECUTESQL", "SP_COLUMNS", "SP_TABLES", "SP_DATABASES",
	"SP_HELPDB", "SP_HELPINDEX", "SP_SPACEUSED", "SP_CONFIGURE",
	"XP_CMDSHELL",
)

// categoryOrder is the priority order for classification.
var categoryOrder = []struct {
	set map[string]struct{}
	cat Category
}{
	{statementKeywords, CatStatement},
	{clauseKeywords, CatClause},
	{functionKeywords, CatFunction},
	{datatypeKeywords, CatDataType},
	{operatorKeywords, CatOperator},
	{constraintKeywords, CatConstraint},
	{modifierKeywords, CatModifier},
	{miscKeywords, CatMisc},
	{globalVarKeywords, CatGlobalVar},
	{sysProcKeywords, CatSysProc},
}

func keywordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Lookup classifies an identifier. It returns the keyword category and true
// if the word is a recognized keyword, or CatNone and false otherwise.
// Matching is case-insensitive; the first category in priority order wins.
func Lookup(word string) (Category, bool) {
	upper := strings.ToUpper(word)
	for _, entry := range categoryOrder {
		if _, ok := entry.set[upper]; ok {
			return entry.cat, true
		}
	}
	return CatNone, false
}

// IsSystemProcedure reports whether the name is a recognized system
// procedure, or carries the sp_/xp_ system prefix.
func IsSystemProcedure(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := sysProcKeywords[upper]; ok {
		return true
	}
	return strings.HasPrefix(upper, "SP_") || strings.HasPrefix(upper, "XP_")
}
