/*
Package ports defines the driven ports (interfaces) used by arepl sessions.

These interfaces decouple the evaluation pipeline from concrete storage and
coordination backends.

# Key Interfaces

  - Cache: byte values with a TTL, used for resource-scoped data such as
    parsed env files (memory or Redis).
  - DistributedLocker: serializes cache fills across arepl instances sharing
    one Redis.
  - RunJournal: records completed runs (SQLite).
  - Preview, PreviewSource: read access to live sessions for the HTTP and
    MCP adapters.
*/
package ports
