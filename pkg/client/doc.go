// Package client is the HTTP client used by the ipsecd CLI.
package client
