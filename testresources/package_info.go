// Package testresources contains the stand-in services that launch tests can request by name:
// Redis, Consul and DynamoDB stores that are reset before a launch, and an in-process mock HTTP
// service with a server-sent-event stream.
//
// Register adds all of them to a resources.Registry under the names in this package's Name
// constants.
package testresources
