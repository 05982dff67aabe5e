/*
Package runtime wraps containerd's client API for the container worker:
pulling a subtask's Docker image, creating a container with the resource
directory bind-mounted read-only and the working directory bind-mounted
read-write, and driving its lifecycle (start, stop, delete, status).

Everything here operates in a single containerd namespace, one container
per subtask, with no networking beyond what the image itself requires.
*/
package runtime
