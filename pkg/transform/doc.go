// Package transform stages changes to a tree and applies them in one step.
//
// A transform names every entry it touches by a TransID. Existing entries get
// one on first lookup (TransIDTreePath, TransIDFileID); new ones come from
// CreatePath or the NewFile, NewDirectory and NewSymlink shortcuts. Staging
// only records intent: names and parents, deleted contents, file ids and the
// executable bit live in maps on the transform, and new content is written
// into a limbo directory next to the tree.
//
// The final state can be inspected before anything on disk changes. FinalPath,
// FinalKind and FinalFileID answer per entry, FindConflicts lists structural
// problems, IterChanges reports the result as tree changes, and GetPreviewTree
// exposes the whole end state as a read-only types.Tree.
//
// TreeTransform.Apply moves removed entries into a pending-deletion
// directory, installs limbo content in place, rewrites the inventory with a
// single delta and then finalizes. A failure while moving rolls every rename
// back through the Mover. PreviewTransform stages against any tree using a
// temporary limbo and can never be applied.
//
// ResolveConflicts stages the standard fixes for conflicts that have one.
// Serialize and Deserialize carry a staged transform between processes.
//
// A transform is single use. Once applied or finalized every staging call
// fails with ErrReusingTransform.
package transform
