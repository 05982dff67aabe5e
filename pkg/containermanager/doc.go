/*
Package containermanager implements the "how do I even run a container
here" concern the Task Computer delegates to before it can dispatch any
subtask to a container worker: Install provisions a containerd backend
(embedded on Linux, inside a Lima VM on macOS), CheckEnvironment verifies
it's reachable, and DockerMachine reports whether a VM sits in between.

BuildConfig/UpdateConfig render and persist the containerd config.toml;
callers serialize updates to it behind the Task Computer's config lock.
*/
package containermanager
