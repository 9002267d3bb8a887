// Package messytables infers column types for tables of untyped values and
// casts cells to the inferred types.
//
// It serves consumers of loosely structured tabular data (spreadsheets,
// delimited files, scraped HTML) who need typed values without hand-written
// schemas. Format adapters produce rows of raw cells; the core looks at a
// bounded sample, votes a [CellType] per column, and applies the winning
// types to every row with fail-soft semantics: a cell that will not convert
// keeps its original value.
//
// # Types
//
// The built-in taxonomy is [StringType], [NullType], [IntegerType],
// [FloatType], [DecimalType] and [DateType]; [BoolType] is available but not
// detected by default. Each type knows how to Test a raw value and how to
// Cast it; Date carries the layout it parses with, so two date types with
// different layouts are distinct. Additional types can be implemented
// against the [CellType] interface and passed to [TypeGuessWith].
//
// # Guessing
//
// [TypeGuess] counts, per column, how many sampled values each candidate
// type accepts, scales the counts by each type's weight (more structured
// types weigh more), and picks the maximum. Ties resolve toward the more
// specific candidate, and between two date layouts toward the earlier
// catalog entry, so results are reproducible.
//
// # Casting
//
// [TypesProcessor] turns a type list into a row transform that converts
// cells in place. A failed conversion leaves the cell untouched and is not
// reported; [StrictTypesProcessor] additionally surfaces each failure to a
// callback without changing what is written.
//
// # Row sources
//
// A [RowSet] wraps a lazy row sequence for one table and bounds sampling at
// its window, and a [TableSet] groups the row sets of one source. The delim,
// xlsx, parquet, htmltable and auto subpackages provide adapters; parquet
// rows arrive already typed and skip guessing.
package messytables
