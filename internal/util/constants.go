package util

// SourceCodeRepo is the public address for this codebase
const SourceCodeRepo string = "https://github.com/pantryhq/pantry"

// SourceCodeIssues is the public address for the issue tracker
const SourceCodeIssues string = "https://github.com/pantryhq/pantry/issues/new"
