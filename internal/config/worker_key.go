package config

type WorkerKeyStruct struct {
	PersistAnswersQueue    string
	PersistResultsQueue    string
	PersistViolationsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:    "persist_answers_queue",
	PersistResultsQueue:    "persist_results_queue",
	PersistViolationsQueue: "persist_violations_queue",
}
