// Command allenpipe inspects and maintains the project metadata cache.
//
// It renders the enriched behavior session, ophys session and ophys
// experiment tables, reports and invalidates materialized cache entries, and
// loads SQL warehouses from a published release.
package main
