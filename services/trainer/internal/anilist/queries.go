package anilist

const mediaFields = `
	id
	title { romaji english }
	popularity
	seasonYear
	season
	genres
	tags { name }
`

const queryUserList = `
query ($userName: String, $userId: Int, $page: Int, $perPage: Int) {
	Page(page: $page, perPage: $perPage) {
		pageInfo { hasNextPage }
		mediaList(userName: $userName, userId: $userId, type: ANIME) {
			id
			status
			media {` + mediaFields + `}
		}
	}
}`

const queryCatalog = `
query ($page: Int, $perPage: Int) {
	Page(page: $page, perPage: $perPage) {
		pageInfo { hasNextPage }
		media(type: ANIME, sort: ID) {` + mediaFields + `}
	}
}`

const queryViewer = `
query {
	Viewer { id name }
}`

const mutationSaveEntry = `
mutation ($mediaId: Int, $status: MediaListStatus) {
	SaveMediaListEntry(mediaId: $mediaId, status: $status) {
		id
		mediaId
		status
		media { title { romaji english } }
	}
}`

const mutationUpdateEntries = `
mutation ($ids: [Int], $status: MediaListStatus) {
	UpdateMediaListEntries(ids: $ids, status: $status) {
		id
		mediaId
		status
		media { title { romaji english } }
	}
}`

const mutationDeleteEntry = `
mutation ($id: Int) {
	DeleteMediaListEntry(id: $id) { deleted }
}`
