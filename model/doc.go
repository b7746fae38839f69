// Package model defines the shared data types of the halo face search engine:
// face records, metadata and query results. It has no dependencies so every
// other package can use it freely.
package model
