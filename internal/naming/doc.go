// Package naming computes destination paths for routed files.
//
// Functions:
//   - OutputPath(file, destRoot, format) → string
//     Pure, deterministic flattening of the course-relative directory into
//     a single name prefix ("project1/resources" → "project1_resources_").
//   - FormatFor(decision) → output-format override
//
// Types:
//   - CollisionResolver: per-run owner map applying a CollisionPolicy
//     (suffix, reject, overwrite) when two sources flatten to one name.
package naming
