package bus

// Topics bundles every event topic the daemon exposes. Components receive
// a borrow of *Topics (usually via the daemon context) rather than reaching
// into a global, per the "global singletons -> daemon context" design note.
type Topics struct {
	TTHAvailable      *Topic[TTHAvailable]
	DuplicateFound    *Topic[DuplicateFound]
	ShareStats        *Topic[ShareStats]
	WillRemoveShare   *Topic[DuplicateFound]
	DownloadFinished  *Topic[DownloadFinished]
	UploadFinished    *Topic[UploadFinished]
	FilelistFinished  *Topic[FilelistFinished]
	TransferAborted   *Topic[TransferAborted]
	TransferStats     *Topic[TransferStats]
	SearchResponse    *Topic[SearchResponse]
	StatusMessage     *Topic[StatusMessage]
	QueueAddTarget    *Topic[QueueAddTarget]
	QueueAddSource    *Topic[QueueAddSource]
}

// NewTopics constructs every topic with its Kind token.
func NewTopics() *Topics {
	return &Topics{
		TTHAvailable:     NewTopic[TTHAvailable](KindTTHAvailable),
		DuplicateFound:   NewTopic[DuplicateFound](KindDuplicateFound),
		ShareStats:       NewTopic[ShareStats](KindShareStats),
		WillRemoveShare:  NewTopic[DuplicateFound](KindWillRemoveShare),
		DownloadFinished: NewTopic[DownloadFinished](KindDownloadFinished),
		UploadFinished:   NewTopic[UploadFinished](KindUploadFinished),
		FilelistFinished: NewTopic[FilelistFinished](KindFilelistFinished),
		TransferAborted:  NewTopic[TransferAborted](KindTransferAborted),
		TransferStats:    NewTopic[TransferStats](KindTransferStats),
		SearchResponse:   NewTopic[SearchResponse](KindSearchResponse),
		StatusMessage:    NewTopic[StatusMessage](KindStatusMessage),
		QueueAddTarget:   NewTopic[QueueAddTarget](KindQueueAddTarget),
		QueueAddSource:   NewTopic[QueueAddSource](KindQueueAddSource),
	}
}
