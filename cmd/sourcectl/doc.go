// Command sourcectl runs a single music source script outside the server.
//
// It shares the sandbox, dispatch and resolution stack with the API server,
// so a script that behaves here behaves the same once uploaded.
//
// Usage:
//
//	sourcectl validate ./kw.js
//	sourcectl invoke ./kw.js search --keyword "hello"
//	sourcectl invoke ./kw.js url --track '{"songmid":"123","source":"kw"}' --quality 320k
//	sourcectl invoke ./kw.js ranking --platform kw --board 16
package main
