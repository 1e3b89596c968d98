package safepkt

import (
	"github.com/jward/safepkt/internal/report"
	"github.com/jward/safepkt/internal/store"
	"github.com/jward/safepkt/internal/syntax"
)

// Public type aliases for internal types used in the Engine and QueryBuilder
// APIs. External consumers use these names; no conversion is needed.

type Store = store.Store
type File = store.File
type Test = store.Test
type FileTest = store.FileTest

type TestDescriptor = syntax.TestDescriptor
type Discovery = syntax.Discovery
type VisibleRange = syntax.VisibleRange
type Point = syntax.Point

type Report = report.Report
type TestOutcome = report.TestOutcome
