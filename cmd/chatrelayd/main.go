// Command chatrelayd serves the chat relay: POST /chat validates a
// conversation and streams the model's reply as SSE or chunked text.
//
// Usage:
//
//	# Start with config/ under the working directory
//	chatrelayd
//
//	# Point at another config root and override the listen address
//	chatrelayd --config-root /etc/chatrelay --addr :9000
//
//	# Validate configuration and provider selection, then exit
//	chatrelayd --check
//
//	# Print build information
//	chatrelayd version
package main

func main() {
	Execute()
}
