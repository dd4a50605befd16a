// Package story turns a child's prompt into a narrated story saved on disk.
//
// Writer asks the LLM for a JSON {title, story} draft sized by age band,
// Pipeline narrates it through a Speaker and hands the result to
// ArtifactStore, which keeps one directory per story under paths.staging_dir
// (story.txt, audio.mp3, cover.*, meta.json). Saved artifacts survive failed
// uploads and can be pushed again by ID.
package story
