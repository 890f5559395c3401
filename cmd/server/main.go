// Command go-mockserver serves mock responses for OpenAPI documents.
package main

func main() {
	Execute()
}
