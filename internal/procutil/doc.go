// Package procutil prepares the child processes the application spawns for
// app.shell, terminals and the ffmpeg namespace so that none of them opens a
// console window of its own.
package procutil
