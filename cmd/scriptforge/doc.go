// Command scriptforge converts long narrative scripts into structured
// production data through a staged, resumable extraction pipeline.
package main
