// Package mongodb implements the storage adapter contract for MongoDB.
// Filters compile to native bson documents, transactions run on server
// sessions and require a replica set or sharded cluster, and savepoints are
// rejected since the engine has no equivalent.
package mongodb
