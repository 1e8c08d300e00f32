package mcpserver

// CoercionContract describes how dtokit converts loose input values to the
// declared field types. LLM consumers should read it before relying on
// populated records.
const CoercionContract = `# dtokit Coercion Contract

A schema is an ordered list of fields, each with a name and a type. Populating
a record from any source (JSON object, HTTP request, stored model) follows the
rules below.

## Population

1. Every declared field is present in the result, in declaration order.
2. Keys the schema does not declare are dropped.
3. A field whose input is absent or null stays **null**; it is never coerced.
4. A present value is converted to the declared type. Untyped fields keep the
   value as given.
5. Assigning a field afterwards always converts, including null: assigning
   null to an int field stores 0.
6. The only failure is an unparseable date. It aborts the whole population.

## Types

| Type | Result | Rules |
|------|--------|-------|
| ` + "`int`" + ` | 64-bit integer | leading number of a string (` + "`\"12abc\"`" + ` → 12, ` + "`\"abc\"`" + ` → 0); floats truncate toward zero; true → 1; empty list/object → 0, non-empty → 1 |
| ` + "`float`" + ` | 64-bit float | leading number of a string, exponent allowed (` + "`\"1e3x\"`" + ` → 1000); true → 1 |
| ` + "`string`" + ` | string | true → ` + "`\"1\"`" + `, false → ` + "`\"\"`" + `; numbers in shortest form; dates as ` + "`2006-01-02 15:04:05`" + `; lists and objects as JSON |
| ` + "`bool`" + ` | boolean | false for ` + "`0`" + `, ` + "`0.0`" + `, ` + "`\"\"`" + `, ` + "`\"0\"`" + `, empty list/object; everything else true (` + "`\"false\"`" + ` is true) |
| ` + "`object`" + ` | key/value map | maps are copied; lists become index-keyed maps; a scalar becomes ` + "`{\"scalar\": value}`" + ` |
| ` + "`array`" + ` | list | lists are copied; maps give their values ordered by key; a scalar becomes a one-item list |
| ` + "`date`" + ` | timestamp | common layouts (RFC 3339, ` + "`YYYY-MM-DD`" + `, ` + "`YYYY-MM-DD HH:MM:SS`" + `, RFC 1123, ...); ` + "`now`" + `, ` + "`today`" + `, ` + "`tomorrow`" + `, ` + "`yesterday`" + `; empty string means now; numbers are Unix seconds |
| ` + "`untyped`" + ` | unchanged | no conversion |

## Schema documents

` + "```" + `yaml
schemas:
  - name: user                      # REQUIRED, lowercase, [a-z][a-z0-9_]*
    description: Public profile     # OPTIONAL
    fields:                         # REQUIRED, at least one, unique names
      - { name: id,      type: int }
      - { name: email,   type: string }
      - { name: born_at, type: date }
      - { name: extra }             # no type: untyped
` + "```" + `

Type aliases: ` + "`integer`" + `, ` + "`double`" + `, ` + "`boolean`" + `, ` + "`datetime`" + `, ` + "`mixed`" + `.
Documents live in the schema directory with a ` + "`.yaml`" + ` or ` + "`.yml`" + ` extension.
`
