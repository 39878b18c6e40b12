package email

const (
	subjectTaskCreatedFmt  = "[%s] New data review task in trial %s"
	subjectTaskResolvedFmt = "Data review task resolved in trial %s"
)
