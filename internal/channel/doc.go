// Package channel defines the backplane channel and key naming scheme
// shared by every instance of the chat service.
package channel
