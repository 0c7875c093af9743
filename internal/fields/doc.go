// Package fields models the revision fields a review service derives from a
// commit message and folds the fields of many commits into one.
//
// A [FieldSet] is always total: scalar fields default to "" and list fields
// to an empty slice. [ParseErrors] maps the service's raw parser messages onto
// the [NoTestPlan], [UnknownReviewer] and [Unrecognized] variants.
//
// [Accumulator] folds field sets in commit order. The first set is installed
// unchanged; later sets are combined with a [MergePolicy]. [AppendPolicy] is
// the default and keeps the first title, joins summaries and test plans, and
// takes the ordered union of reviewers and ccs. [OverridePolicy] lets the
// latest non-empty scalar win instead.
package fields
