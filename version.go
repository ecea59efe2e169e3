package instantsearch

// Version is reported to the backend as part of the client agent.
const Version = "1.3.0"
