package jobs

import "path/filepath"

func rootDir(repo string) string {
	return filepath.Join(repo, ".port", "jobs")
}

func indexFile(repo string) string {
	return filepath.Join(rootDir(repo), "index.json")
}

func indexLockFile(repo string) string {
	return filepath.Join(rootDir(repo), "index.lock")
}

func eventsDir(repo string) string {
	return filepath.Join(rootDir(repo), "events")
}

func eventFile(repo, taskID string) string {
	return filepath.Join(eventsDir(repo), taskID+".jsonl")
}

func allEventsFile(repo string) string {
	return filepath.Join(eventsDir(repo), "all.jsonl")
}

func runtimeDir(repo string) string {
	return filepath.Join(rootDir(repo), "runtime")
}

func artifactsDir(repo, taskID string) string {
	return filepath.Join(rootDir(repo), "artifacts", taskID)
}

// ArtifactsDir returns the directory a task's worker writes its artifacts
// to (stdout.log, stderr.log, metadata.json, and for write-mode tasks
// commit-refs.json/changes.patch).
func ArtifactsDir(repo, taskID string) string {
	return artifactsDir(repo, taskID)
}

func subscribersDir(repo string) string {
	return filepath.Join(rootDir(repo), "subscribers")
}

func cursorFile(repo, consumer string) string {
	return filepath.Join(subscribersDir(repo), consumer+".cursor.json")
}

func notificationLogFile(repo, consumer string) string {
	return filepath.Join(subscribersDir(repo), consumer+".notifications.log")
}
